package config

// Flags carries command-line overrides. Zero values mean "not set".
type Flags struct {
	DBProvider         string
	DBURL              string
	TelegramBotToken   string
	EmbeddingProvider  string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingAPIKey    string
	EmbeddingAPIBase   string
	ProxyIP            string
	ProxyPort          int
	ProxySocksType     int
	ProxyTimeout       int
	ProxyUsername      string
	ProxyPassword      string
}

// ApplyFlags returns a copy of base with the set flags applied on top.
func ApplyFlags(base *Config, f Flags) *Config {
	out := *base

	if f.DBProvider != "" {
		out.Database.Type = f.DBProvider
	}
	if f.DBURL != "" {
		out.Database.URL = f.DBURL
	}
	if out.Database.Type == DatabasePostgres && out.Database.URL == "" {
		out.Database.URL = out.DatabaseDSN()
	}

	if f.TelegramBotToken != "" {
		out.API.Telegram.BotToken = f.TelegramBotToken
	}

	emb := &out.API.Embedding
	if f.EmbeddingProvider != "" {
		emb.Provider = f.EmbeddingProvider
	}
	if f.EmbeddingModel != "" {
		emb.Model = f.EmbeddingModel
	}
	if f.EmbeddingDimension != 0 {
		emb.Dimension = f.EmbeddingDimension
	}
	if f.EmbeddingAPIKey != "" {
		emb.APIKey = f.EmbeddingAPIKey
	}
	if f.EmbeddingAPIBase != "" {
		emb.APIBase = f.EmbeddingAPIBase
	}

	proxy := out.API.Telegram.Proxy
	if f.ProxyIP != "" {
		proxy.IP = f.ProxyIP
	}
	if f.ProxyPort != 0 {
		proxy.Port = f.ProxyPort
	}
	if f.ProxySocksType != 0 {
		proxy.SocksType = f.ProxySocksType
	}
	if f.ProxyTimeout != 0 {
		proxy.Timeout = f.ProxyTimeout
	}
	if f.ProxyUsername != "" {
		proxy.Username = f.ProxyUsername
	}
	if f.ProxyPassword != "" {
		proxy.Password = f.ProxyPassword
	}
	// A proxy without an address is no proxy at all.
	if proxy.IP != "" && proxy.Port != 0 {
		out.API.Telegram.Proxy = proxy
	}

	return &out
}
