package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/recall/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	writeConfig := func(data string) {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
	}

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads a valid config file", func() {
			writeConfig(`version = 0

[pipeline]
max_retries = 4
system_prompt = "You are terse."

[router]
query = ["anthropic", "openai"]

[backends.anthropic]
api_key = "ssm:/recall/anthropic"
`)
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Pipeline.MaxRetries).To(Equal(4))
			Expect(cfg.Pipeline.SystemPrompt).To(Equal("You are terse."))
			Expect(cfg.Router.Query).To(Equal([]string{"anthropic", "openai"}))
			Expect(cfg.Backends.Anthropic.APIKey).To(Equal("ssm:/recall/anthropic"))
		})

		It("fills in defaults for keys missing from a partial config", func() {
			writeConfig(`[api]
listen = ":9000"
`)
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())

			defaults := config.NewDefaultConfig()
			Expect(cfg.API.Listen).To(Equal(":9000"))
			Expect(cfg.API.RequestTimeout).To(Equal(defaults.API.RequestTimeout))
			Expect(cfg.Pipeline.MaxRetries).To(Equal(defaults.Pipeline.MaxRetries))
			Expect(cfg.Router.Extract).To(Equal(defaults.Router.Extract))
			Expect(cfg.Backends.OpenAI.Enabled).To(BeTrue())
			Expect(cfg.Memory.Enabled).To(BeTrue())
			Expect(cfg.Embedding.Dimensions).To(Equal(defaults.Embedding.Dimensions))
		})

		It("keeps explicit zero values instead of replacing them with defaults", func() {
			writeConfig(`[pipeline]
max_retries = 0
temperature = 0.0

[backends.anthropic]
enabled = false

[memory]
enabled = false
`)
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Pipeline.MaxRetries).To(Equal(0))
			Expect(cfg.Pipeline.Temperature).To(Equal(0.0))
			Expect(cfg.Backends.Anthropic.Enabled).To(BeFalse())
			Expect(cfg.Backends.OpenAI.Enabled).To(BeTrue())
			Expect(cfg.Memory.Enabled).To(BeFalse())
		})

		It("returns error for malformed TOML", func() {
			writeConfig("this is not valid toml [[[")

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("parsing config TOML"))
		})

		It("returns error for unsupported config version", func() {
			writeConfig("version = 99\n")

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unsupported config version 99"))
		})
	})

	Describe("SaveConfig", func() {
		It("round-trips every field", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Pipeline.MaxRetries = 0
			cfg.Pipeline.RefetchMemory = true
			cfg.Storage.Driver = "postgres"
			cfg.Storage.PostgresDSN = "postgres://localhost/recall"
			cfg.Events.Provider = "kafka"
			cfg.Events.Brokers = []string{"kafka-1:9092", "kafka-2:9092"}
			cfg.Telemetry.OTLPEndpoint = "localhost:4318"

			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SaveConfig(nil)).To(MatchError(ContainSubstring("nil config")))
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("sets and gets a string key", func() {
			Expect(c.SetConfigValue("storage.driver", "dynamodb")).To(Succeed())

			v, err := c.GetConfigValue("storage.driver")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("dynamodb"))
		})

		It("sets list keys from comma-separated values", func() {
			Expect(c.SetConfigValue("router.query", "anthropic, openai,")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Router.Query).To(Equal([]string{"anthropic", "openai"}))

			v, err := c.GetConfigValue("router.query")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("anthropic,openai"))
		})

		It("persists an explicit zero retry count", func() {
			Expect(c.SetConfigValue("pipeline.max_retries", "0")).To(Succeed())

			v, err := c.GetConfigValue("pipeline.max_retries")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("0"))
		})

		It("preserves existing values when setting a new key", func() {
			Expect(c.SetConfigValue("api.listen", ":9999")).To(Succeed())
			Expect(c.SetConfigValue("pipeline.diagnostics", "true")).To(Succeed())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.API.Listen).To(Equal(":9999"))
			Expect(cfg.Pipeline.Diagnostics).To(BeTrue())
		})

		It("rejects invalid typed values", func() {
			Expect(c.SetConfigValue("pipeline.max_retries", "many")).To(HaveOccurred())
			Expect(c.SetConfigValue("pipeline.max_retries", "-1")).To(HaveOccurred())
			Expect(c.SetConfigValue("pipeline.temperature", "warm")).To(HaveOccurred())
			Expect(c.SetConfigValue("pipeline.refetch_memory", "maybe")).To(HaveOccurred())
			Expect(c.SetConfigValue("api.request_timeout", "soon")).To(HaveOccurred())
			Expect(c.SetConfigValue("embedding.dimensions", "not-a-number")).To(HaveOccurred())
		})

		It("returns error for unknown keys", func() {
			Expect(c.SetConfigValue("proxy.upstream", "x")).To(MatchError(ContainSubstring("unknown config key")))

			_, err := c.GetConfigValue("proxy.upstream")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("returns defaults when no config file exists", func() {
			v, err := c.GetConfigValue("metrics.report_schedule")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("@every 15m"))

			v, err = c.GetConfigValue("telemetry.otlp_endpoint")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeEmpty())
		})
	})
})

var _ = Describe("ValidConfigKeys", func() {
	It("returns every key in section order", func() {
		keys := config.ValidConfigKeys()
		Expect(keys[0]).To(Equal("api.listen"))
		Expect(keys).To(ContainElements(
			"pipeline.max_retries",
			"pipeline.refetch_memory",
			"router.query",
			"backends.openai.api_key",
			"storage.dynamodb_table",
			"events.brokers",
			"telemetry.otlp_endpoint",
		))
		Expect(keys[len(keys)-1]).To(Equal("telemetry.otlp_endpoint"))
	})

	It("only returns keys accepted by IsValidConfigKey", func() {
		for _, k := range config.ValidConfigKeys() {
			Expect(config.IsValidConfigKey(k)).To(BeTrue(), k)
		}
		Expect(config.IsValidConfigKey("max_retries")).To(BeFalse())
	})
})

var _ = Describe("PresetConfig", func() {
	It("orders the anthropic preset chain with anthropic first", func() {
		cfg, err := config.PresetConfig("anthropic")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Router.Query).To(Equal([]string{"anthropic", "openai"}))
	})

	It("points the ollama preset at the OpenAI-compatible endpoint", func() {
		cfg, err := config.PresetConfig("OLLAMA")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Router.Query).To(Equal([]string{"openai"}))
		Expect(cfg.Backends.OpenAI.BaseURL).To(Equal("http://localhost:11434/v1"))
		Expect(cfg.Backends.Anthropic.Enabled).To(BeFalse())
		Expect(cfg.Memory.Provider).To(Equal("semantic"))
	})

	It("returns error for unknown preset", func() {
		_, err := config.PresetConfig("gemini")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))
	})

	It("lists the preset names", func() {
		Expect(config.ValidPresetNames()).To(Equal([]string{"openai", "anthropic", "ollama"}))
	})
})

var _ = Describe("ParseConfigTOML", func() {
	It("does not apply defaults", func() {
		cfg, err := config.ParseConfigTOML([]byte(`[api]
listen = ":1234"
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.API.Listen).To(Equal(":1234"))
		Expect(cfg.Pipeline.MaxRetries).To(Equal(0))
		Expect(cfg.Router.Query).To(BeEmpty())
	})

	It("returns empty config for empty input", func() {
		cfg, err := config.ParseConfigTOML([]byte(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(*cfg).To(Equal(config.Config{}))
	})
})

var _ = Describe("APIConfig.Timeout", func() {
	It("parses the request timeout", func() {
		d, err := config.APIConfig{RequestTimeout: "90s"}.Timeout()
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(Equal(90 * time.Second))
	})

	It("treats an empty value as no timeout", func() {
		d, err := config.APIConfig{}.Timeout()
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeZero())
	})

	It("rejects malformed durations", func() {
		_, err := config.APIConfig{RequestTimeout: "later"}.Timeout()
		Expect(err).To(HaveOccurred())
	})
})
