// Package servicediscover registers the core process with Consul so
// operator dashboards and other platform services can discover it, and
// deregisters it on shutdown.
package servicediscover

import (
	"context"
	"fmt"

	"integrity-core/pkg/config"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("servicediscover",
	fx.Provide(NewConfig, NewClient, NewRegistry),
	fx.Invoke(registerLifecycle),
)

type ServiceRegistry interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

type serviceRegistry struct {
	client  *api.Client
	service *api.AgentServiceRegistration
}

func NewConfig(cfg *config.Config) *api.Config {
	c := api.DefaultConfig()
	c.Address = cfg.Consul.Addr
	return c
}

func NewClient(apiCfg *api.Config) (*api.Client, error) {
	return api.NewClient(apiCfg)
}

func NewRegistry(client *api.Client, cfg *config.Config) ServiceRegistry {
	return &serviceRegistry{
		client: client,
		service: &api.AgentServiceRegistration{
			ID:   fmt.Sprintf("%s-%s", cfg.AppName, cfg.Server.Addr),
			Name: cfg.AppName,
			Check: &api.AgentServiceCheck{
				HTTP:     fmt.Sprintf("http://127.0.0.1%s/health/readiness", cfg.Server.Addr),
				Interval: "10s",
				Timeout:  "5s",
			},
		},
	}
}

func (r *serviceRegistry) Register(ctx context.Context) error {
	return r.client.Agent().ServiceRegister(r.service)
}

func (r *serviceRegistry) Deregister(ctx context.Context) error {
	return r.client.Agent().ServiceDeregister(r.service.ID)
}

func registerLifecycle(lc fx.Lifecycle, registry ServiceRegistry) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := registry.Register(ctx); err != nil {
				zap.L().Warn("failed to register with consul", zap.Error(err))
				return nil
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return registry.Deregister(ctx)
		},
	})
}
