package transport

import (
	"github.com/foxseedlab/voicememo/internal/config"
	"github.com/foxseedlab/voicememo/internal/session"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewServer(ServerConfig{
			MaxMessageBytes: c.WSMaxMessageBytes,
			AllowedOrigins:  c.WSAllowedOrigins,
		}, do.MustInvoke[*session.Coordinator](i)), nil
	})
}
