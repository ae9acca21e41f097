package redis

// Config holds the connection settings for the relay's Redis bridge.
type Config struct {
	Addr     string
	Password string
	DB       int
	UseTLS   bool
}
