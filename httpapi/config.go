package httpapi

// Config defines HTTP viewer settings.
type Config struct {
	Addr          string
	StreamHistory int
}
