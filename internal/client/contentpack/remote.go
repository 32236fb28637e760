package contentpack

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/bankwiser/internal/common"
	"github.com/dmitrijs2005/bankwiser/internal/netx"
)

// RemoteConfig tells the client which content database it should run.
type RemoteConfig struct {
	TargetVersion int    `json:"target_db_version"`
	PackName      string `json:"asset_pack_name"`
	DBFileName    string `json:"db_file_name"`
}

func (c RemoteConfig) validate() error {
	switch {
	case c.TargetVersion <= 0:
		return fmt.Errorf("%w: target_db_version must be positive", common.ErrInvalidArgument)
	case c.PackName == "":
		return fmt.Errorf("%w: asset_pack_name is empty", common.ErrInvalidArgument)
	case c.DBFileName == "":
		return fmt.Errorf("%w: db_file_name is empty", common.ErrInvalidArgument)
	}
	return nil
}

// ConfigFetcher returns the current remote config.
type ConfigFetcher interface {
	Fetch(ctx context.Context) (RemoteConfig, error)
}

// HTTPConfig reads RemoteConfig as a JSON document from URL.
type HTTPConfig struct {
	URL    string
	Client *http.Client
}

func (h HTTPConfig) Fetch(ctx context.Context) (RemoteConfig, error) {
	var rc RemoteConfig
	if h.URL == "" {
		return rc, fmt.Errorf("%w: remote config URL is not set", common.ErrInvalidArgument)
	}
	if err := netx.GetJSON(ctx, h.Client, h.URL, &rc); err != nil {
		return rc, fmt.Errorf("fetch remote config: %w", err)
	}
	if err := rc.validate(); err != nil {
		return rc, err
	}
	return rc, nil
}
