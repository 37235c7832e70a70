package postgres

import (
	"context"

	"github.com/ekaya-inc/querygate/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Engine:      engineName,
			DisplayName: "PostgreSQL",
		},
		Factory: func(ctx context.Context, params map[string]any) (datasource.Adapter, error) {
			cfg, err := FromMap(params)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg)
		},
	})
}
