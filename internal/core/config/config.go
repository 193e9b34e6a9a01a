package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the configuration for the application.
// Tags used:
// - mapstructure: used by viper to unmarshal
// - default: default value to set if missing
// - required: if "true", error if missing
type AppConfig struct {
	// Environment specifies the runtime environment (e.g., development, production).
	Environment string `mapstructure:"APP_ENV" default:"development"`
	// LogLevel defines the logging verbosity (e.g., debug, info, error).
	LogLevel string `mapstructure:"LOG_LEVEL" default:"info"`
	// ServerPort is the port where the server will listen.
	ServerPort int `mapstructure:"SERVER_PORT" default:"8080"`

	// Redis holds the persistence configuration.
	Redis RedisConfig `mapstructure:",squash"`

	// Returns holds the return policy configuration.
	Returns ReturnsConfig `mapstructure:",squash"`

	// WooCommerce holds the WooCommerce API configuration used for catalog lookups.
	WooCommerce WooCommerceConfig `mapstructure:",squash"`

	// Carrier holds the GHN carrier configuration.
	Carrier CarrierConfig `mapstructure:",squash"`

	// Proxy holds the upstream proxy used by the browser-based tracking provider.
	Proxy ProxyConfig `mapstructure:",squash"`

	// Payments holds the settlement gateway configuration.
	Payments PaymentsConfig `mapstructure:",squash"`

	// Notifications holds the notification sinks configuration.
	Notifications NotificationsConfig `mapstructure:",squash"`
}

// RedisConfig holds the Redis connection details.
type RedisConfig struct {
	// URL is the Redis connection string (redis://[:password@]host[:port][/database]).
	URL string `mapstructure:"REDIS_URL" required:"true"`
}

// ReturnsConfig holds the return/exchange policy.
type ReturnsConfig struct {
	// WindowDays is how long after delivery a return request may be submitted.
	WindowDays int `mapstructure:"RETURN_WINDOW_DAYS" default:"7"`
	// ShippingFee is the flat return shipping fee, in minor units.
	ShippingFee int64 `mapstructure:"RETURN_SHIPPING_FEE" default:"30000"`
	// ChangeMindRefundPercent is the share refunded when the customer changed their mind.
	ChangeMindRefundPercent int64 `mapstructure:"RETURN_CHANGE_MIND_REFUND_PERCENT" default:"90"`
}

// WooCommerceConfig holds the credentials for the WooCommerce Store.
type WooCommerceConfig struct {
	// URL is the base URL of the WooCommerce store.
	URL string `mapstructure:"WC_URL" required:"true"`
	// ConsumerKey is the public key for API access.
	ConsumerKey string `mapstructure:"WC_CONSUMER_KEY" required:"true"`
	// ConsumerSecret is the secret key for API access.
	ConsumerSecret string `mapstructure:"WC_CONSUMER_SECRET" required:"true"`
	// PriceDecimals is how many minor units the store prices carry (0 for VND, 2 for USD).
	PriceDecimals int `mapstructure:"WC_PRICE_DECIMALS" default:"0"`
}

// CarrierConfig holds the GHN API and tracking poller settings.
type CarrierConfig struct {
	// APIURL is the GHN public API base URL.
	APIURL string `mapstructure:"GHN_API_URL" default:"https://online-gateway.ghn.vn/shiip/public-api"`
	// Token is the GHN API token. When empty the public tracking page is scraped instead.
	Token string `mapstructure:"GHN_TOKEN"`
	// ShopID is the GHN shop identifier.
	ShopID string `mapstructure:"GHN_SHOP_ID"`
	// PortalURL is the public tracking page, with %s replaced by the order code.
	PortalURL string `mapstructure:"GHN_PORTAL_URL" default:"https://donhang.ghn.vn/?order_code=%s"`
	// PollIntervalSeconds is the period of the tracking poller. 0 disables polling.
	PollIntervalSeconds int `mapstructure:"TRACKING_POLL_INTERVAL_SECONDS" default:"900"`
	// PollConcurrency bounds how many codes are synced in parallel.
	PollConcurrency int `mapstructure:"TRACKING_POLL_CONCURRENCY" default:"4"`
}

// ProxyConfig holds the upstream proxy details.
type ProxyConfig struct {
	Enabled  bool   `mapstructure:"PROXY_ENABLED"`
	Host     string `mapstructure:"PROXY_HOST"`
	Port     int    `mapstructure:"PROXY_PORT"`
	Username string `mapstructure:"PROXY_USERNAME"`
	Password string `mapstructure:"PROXY_PASSWORD"`
}

// PaymentsConfig holds the settlement gateway settings.
type PaymentsConfig struct {
	// StripeSecretKey enables the Stripe gateway. When empty obligations are only logged.
	StripeSecretKey string `mapstructure:"STRIPE_SECRET_KEY"`
	// Currency is the ISO currency used for refunds and additional charges.
	Currency string `mapstructure:"SETTLEMENT_CURRENCY" default:"vnd"`
}

// NotificationsConfig holds the notification sinks settings.
type NotificationsConfig struct {
	// EventsStream is the Redis stream every workflow event is appended to.
	EventsStream string `mapstructure:"EVENTS_STREAM" default:"returns:events"`
	// SendGridAPIKey enables customer emails.
	SendGridAPIKey string `mapstructure:"SENDGRID_API_KEY"`
	// SendGridFromEmail is the sender address for customer emails.
	SendGridFromEmail string `mapstructure:"SENDGRID_FROM_EMAIL" default:"no-reply@storefront.local"`
	// KafkaBrokers is a comma separated broker list. Empty disables the Kafka publisher.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic is the topic workflow events are published to.
	KafkaTopic string `mapstructure:"KAFKA_TOPIC" default:"returns.events"`
}

// Window returns the return window as a duration.
func (c ReturnsConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// PollInterval returns the tracking poller period. Zero means disabled.
func (c CarrierConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Brokers splits KafkaBrokers into a list, ignoring blanks.
func (c NotificationsConfig) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Load loads configuration from .env files and environment variables.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.AutomaticEnv()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config AppConfig

	if err := processTags(v, &config); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validateRequired(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// processTags iterates over the struct fields and sets default values in Viper.
func processTags(v *viper.Viper, config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := processTags(v, val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("mapstructure")
		defaultValue := field.Tag.Get("default")

		if key != "" {
			v.BindEnv(key)
		}

		if key != "" && defaultValue != "" {
			v.SetDefault(key, defaultValue)
		}
	}
	return nil
}

// validateRequired checks if fields marked as required have non-zero values.
func validateRequired(config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := validateRequired(val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		required := field.Tag.Get("required")
		if required == "true" {
			value := val.Field(i)
			if isZero(value) {
				key := field.Tag.Get("mapstructure")
				return fmt.Errorf("missing required configuration: %s", key)
			}
		}
	}
	return nil
}

// isZero checks if a reflect.Value is the zero value for its type.
func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.String() == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}
