package provider

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spooky-finn/bitmex-pipe-bridge/config"
	"github.com/spooky-finn/bitmex-pipe-bridge/domain"
	"github.com/spooky-finn/bitmex-pipe-bridge/provider/bitmex"
)

// ConnectionManager builds the exchange clients from the config.
type ConnectionManager struct {
	Credentials  bitmex.Credentials
	StreamClient *bitmex.StreamClient
	BitmexSync   *bitmex.SyncAPI
}

var _ domain.ConnManager = (*ConnectionManager)(nil)

func NewConnectionManager(conf *config.Config, logger *log.Logger) (*ConnectionManager, error) {
	creds := bitmex.Credentials{Key: conf.APIKey, Secret: conf.APISecret}

	syncAPI, err := bitmex.NewSyncAPI(conf.RestURL, creds, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create rest client: %w", err)
	}

	return &ConnectionManager{
		Credentials:  creds,
		StreamClient: bitmex.NewStreamClient(conf.ConnectTimeout, logger),
		BitmexSync:   syncAPI,
	}, nil
}

func (cm *ConnectionManager) StreamAPI() domain.FeedSocket {
	return cm.StreamClient
}

func (cm *ConnectionManager) SyncAPI() domain.ProviderSyncAPI {
	return cm.BitmexSync
}
