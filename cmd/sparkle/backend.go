package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sparkle/client-go/store"
	"github.com/sparkle/client-go/store/etcdstore"
	"github.com/sparkle/client-go/store/memstore"
	"github.com/sparkle/client-go/store/redisstore"
	"github.com/sparkle/client-go/store/rtdb"
)

// openStore connects the backend named in cfg.
func openStore(ctx context.Context, cfg *Config, logger zerolog.Logger) (store.Store, error) {
	sc := cfg.Store
	switch sc.Backend {
	case "memory":
		logger.Warn().Msg("memory backend: nothing leaves this process")
		return memstore.New(), nil

	case "redis":
		opts := []redisstore.Option{redisstore.WithLogger(logger)}
		if sc.Prefix != "" {
			opts = append(opts, redisstore.WithPrefix(sc.Prefix))
		}
		return redisstore.Dial(ctx, redisstore.Config{
			Addrs:    sc.Addrs,
			Username: sc.Username,
			Password: sc.Password,
			DB:       sc.DB,
		}, opts...)

	case "etcd":
		opts := []etcdstore.Option{etcdstore.WithLogger(logger)}
		if sc.Prefix != "" {
			opts = append(opts, etcdstore.WithPrefix(sc.Prefix))
		}
		return etcdstore.Dial(ctx, etcdstore.Config{
			Endpoints:   sc.Endpoints,
			Username:    sc.Username,
			Password:    sc.Password,
			DialTimeout: cfg.Timeout,
		}, opts...)

	case "rtdb":
		mode := rtdb.DeliveryMode(sc.Delivery)
		if mode == "" {
			mode = rtdb.DeliveryModeAuto
		}
		return rtdb.Dial(rtdb.Config{
			URL:        sc.URL,
			AuthToken:  sc.AuthToken,
			Timeout:    cfg.Timeout,
			MaxRetries: sc.MaxRetries,
		}, rtdb.WithDeliveryMode(mode), rtdb.WithLogger(logger))
	}
	return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
}
