package plan

import (
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Catalog resolves plans by canonical identifier. The backing list can be
// hot-reloaded from a mounted plans.yml without a restart.
type Catalog struct {
	current atomic.Value // holds map[ID]Plan
}

// NewStaticCatalog builds a catalog from a fixed plan list, with no file
// watching. Useful where the plans.yml machinery is unwanted, such as tests.
func NewStaticCatalog(plans []Plan) *Catalog {
	c := &Catalog{}
	c.store(plans)
	return c
}

func NewCatalog(log *zap.Logger) (*Catalog, error) {
	c := &Catalog{}
	c.store(DefaultCatalog())

	v := viper.New()
	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/dineline/config")
	v.AddConfigPath("/etc/dineline")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DINELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		return c, nil
	}

	if err := c.reload(v, log); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		if err := c.reload(v, log); err != nil {
			log.Warn("plan catalog reload failed", zap.Error(err))
		}
	})
	v.WatchConfig()

	return c, nil
}

func (c *Catalog) reload(v *viper.Viper, log *zap.Logger) error {
	var plans []Plan
	if err := v.UnmarshalKey("plans", &plans); err != nil {
		return err
	}
	if len(plans) == 0 {
		plans = DefaultCatalog()
	}
	c.store(plans)
	log.Info("plan catalog loaded", zap.Int("plans", len(plans)))
	return nil
}

func (c *Catalog) store(plans []Plan) {
	byID := make(map[ID]Plan, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
	}
	c.current.Store(byID)
}

// Lookup returns the plan for the given canonical identifier.
func (c *Catalog) Lookup(id ID) (Plan, bool) {
	byID, _ := c.current.Load().(map[ID]Plan)
	p, ok := byID[id]
	return p, ok
}

// Module provides the plan catalog.
var Module = fx.Module("plan",
	fx.Provide(NewCatalog),
)
