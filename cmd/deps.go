package cmd

import (
	"github.com/fipeops/fipecrawler/internal/cache"
	"github.com/fipeops/fipecrawler/internal/fipe"
)

// buildClient constructs the FIPE API client from the loaded config.
func buildClient(rt *runtime) (*fipe.Client, error) {
	return fipe.New(fipe.Config{
		BaseURL:         rt.cfg.HTTP.BaseURL,
		Timeout:         rt.cfg.HTTPTimeout(),
		MaxRetries:      rt.cfg.HTTP.MaxRetries,
		RetryBaseWait:   rt.cfg.RetryBaseWait(),
		RequestInterval: rt.cfg.RequestInterval(),
	}, rt.log)
}

// openCache opens the local catalog cache at the configured path.
func openCache(rt *runtime) (*cache.Cache, error) {
	return cache.Open(rt.cfg.Cache.Path, rt.log)
}
