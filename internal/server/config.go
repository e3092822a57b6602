package server

// HttpConfig configures the http server. Port 0 picks a free port.
type HttpConfig struct {
	Host string `conf:"host"`
	Port int    `conf:"port"`

	// H2c enables HTTP/2 over cleartext
	H2c bool `conf:"h2c"`
}
