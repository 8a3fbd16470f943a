package entity

import "github.com/shopspring/decimal"

// Keys of the app_settings table.
const (
	SettingThemeColor            = "theme.customerThemeColor"
	SettingDeliveryFee           = "delivery.deliveryFee"
	SettingFreeDeliveryThreshold = "delivery.freeDeliveryThreshold"
)

// AppSettings is process-wide configuration fetched once at startup.
type AppSettings struct {
	ThemeColor            string          `json:"theme_color"`
	DeliveryFee           decimal.Decimal `json:"delivery_fee"`
	FreeDeliveryThreshold decimal.Decimal `json:"free_delivery_threshold"`
}

func DefaultAppSettings() AppSettings {
	return AppSettings{
		ThemeColor:            "#673AB7",
		DeliveryFee:           decimal.RequireFromString("10.00"),
		FreeDeliveryThreshold: decimal.Zero,
	}
}

/*
MySQL schema:

CREATE TABLE app_settings (
	setting_key VARCHAR(128) PRIMARY KEY,
	setting_value VARCHAR(255) NOT NULL
);
*/
