package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/Stream/internal/adapters/rtc"
	"github.com/dkeye/Stream/internal/app"
	"github.com/dkeye/Stream/internal/app/ingest"
	"github.com/dkeye/Stream/internal/core"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RTPConfig struct {
	ListenIP      string        `mapstructure:"listen_ip" validate:"omitempty,ip"`
	Port          int           `mapstructure:"port" validate:"min=1,max=65534"`
	Kind          string        `mapstructure:"kind" validate:"oneof=audio video"`
	MimeType      string        `mapstructure:"mime_type" validate:"required,contains=/"`
	PayloadType   uint8         `mapstructure:"payload_type" validate:"min=96,max=127"`
	ClockRate     uint32        `mapstructure:"clock_rate" validate:"required"`
	Fmtp          string        `mapstructure:"fmtp"`
	CNAME         string        `mapstructure:"cname" validate:"required"`
	RetryInterval time.Duration `mapstructure:"retry_interval" validate:"gt=0"`
}

type WebRTCConfig struct {
	ListenIP    string   `mapstructure:"listen_ip" validate:"omitempty,ip"`
	AnnouncedIP string   `mapstructure:"announced_ip" validate:"omitempty,ip"`
	PortMin     uint16   `mapstructure:"port_min" validate:"required"`
	PortMax     uint16   `mapstructure:"port_max" validate:"required,gtefield=PortMin"`
	ICELite     bool     `mapstructure:"ice_lite"`
	STUNURLs    []string `mapstructure:"stun_urls"`
}

type DiscoveryConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	Attempts int           `mapstructure:"attempts" validate:"min=1"`
}

type SignalConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer" validate:"min=1"`
	RateLimit    int           `mapstructure:"rate_limit" validate:"min=1"`
	RateInterval time.Duration `mapstructure:"rate_interval" validate:"gt=0"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
}

type Config struct {
	Mode        string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port        int           `mapstructure:"port" validate:"min=1,max=65535"`
	StaticPath  string        `mapstructure:"static_path"`
	ReadLimit   int64         `mapstructure:"read_limit" validate:"min=1024"`
	PingPeriod  time.Duration `mapstructure:"ping_period" validate:"gt=0"`
	Secret      string        `mapstructure:"secret" validate:"required,min=16"`
	DefaultRoom string        `mapstructure:"default_room" validate:"required,max=64"`
	// AdminToken guards the session API; empty disables it.
	AdminToken  string        `mapstructure:"admin_token" validate:"omitempty,min=16"`

	RTP       RTPConfig       `mapstructure:"rtp"`
	WebRTC    WebRTCConfig    `mapstructure:"webrtc"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Signal    SignalConfig    `mapstructure:"signal"`
	Log       LogConfig       `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me-stream-secret")
	v.SetDefault("default_room", string(domain.DefaultRoom))
	v.SetDefault("admin_token", "")

	v.SetDefault("rtp.listen_ip", "")
	v.SetDefault("rtp.port", 5004)
	v.SetDefault("rtp.kind", "video")
	v.SetDefault("rtp.mime_type", "video/H264")
	v.SetDefault("rtp.payload_type", 96)
	v.SetDefault("rtp.clock_rate", 90000)
	v.SetDefault("rtp.fmtp", "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f")
	v.SetDefault("rtp.cname", "rtp-ingest")
	v.SetDefault("rtp.retry_interval", "1s")

	v.SetDefault("webrtc.listen_ip", "")
	v.SetDefault("webrtc.announced_ip", "")
	v.SetDefault("webrtc.port_min", 40000)
	v.SetDefault("webrtc.port_max", 49999)
	v.SetDefault("webrtc.ice_lite", true)
	v.SetDefault("webrtc.stun_urls", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("discovery.interval", "100ms")
	v.SetDefault("discovery.attempts", 50)

	v.SetDefault("signal.send_buffer", 32)
	v.SetDefault("signal.rate_limit", 20)
	v.SetDefault("signal.rate_interval", "1s")

	v.SetDefault("log.level", "info")
}

// Load reads config/config.<CONFIG_ENV>.yaml when present, then STREAM_*
// environment overrides, and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("STREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Int("rtp_port", cfg.RTP.Port).
		Str("static", cfg.StaticPath).
		Msg("config ready")
	return &cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Ingest is the receiver configuration of the default room.
func (c *Config) Ingest() ingest.Config {
	kind, _ := domain.ParseMediaKind(c.RTP.Kind)
	return ingest.Config{
		ListenIP:      c.RTP.ListenIP,
		Port:          c.RTP.Port,
		Kind:          kind,
		MimeType:      c.RTP.MimeType,
		PayloadType:   c.RTP.PayloadType,
		ClockRate:     c.RTP.ClockRate,
		Parameters:    core.ParseFmtp(c.RTP.Fmtp),
		CNAME:         c.RTP.CNAME,
		RetryInterval: c.RTP.RetryInterval,
	}
}

// Codecs is the fixed capability list every router is negotiated with.
func (c *Config) Codecs() []core.RtpCodecCapability {
	return []core.RtpCodecCapability{c.Ingest().Codec()}
}

func (c *Config) Engine() rtc.Config {
	return rtc.Config{
		ListenIP:    c.WebRTC.ListenIP,
		AnnouncedIP: c.WebRTC.AnnouncedIP,
		PortMin:     c.WebRTC.PortMin,
		PortMax:     c.WebRTC.PortMax,
		ICELite:     c.WebRTC.ICELite,
		STUNURLs:    c.WebRTC.STUNURLs,
	}
}

func (c *Config) DiscoveryOptions() app.DiscoveryOptions {
	return app.DiscoveryOptions{Interval: c.Discovery.Interval, Attempts: c.Discovery.Attempts}
}
