package auth

import (
	"github.com/foxseedlab/voicememo/internal/auth"
	"github.com/foxseedlab/voicememo/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (auth.Provider, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.GoogleAuthMode == config.AuthModeServiceAccount {
			return NewServiceAccountProvider([]byte(c.GoogleCredentialsJSON))
		}
		return NewOAuthUserProvider([]byte(c.GoogleCredentialsJSON), c.GoogleTokenFile)
	})
}
