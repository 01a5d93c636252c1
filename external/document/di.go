package document

import (
	"github.com/foxseedlab/voicememo/internal/auth"
	"github.com/foxseedlab/voicememo/internal/document"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (document.Sink, error) {
		return NewGoogleDocsSink(do.MustInvoke[auth.Provider](i)), nil
	})
}
