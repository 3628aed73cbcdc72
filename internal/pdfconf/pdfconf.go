// Package pdfconf hands out pdfcpu configurations that never touch the
// user's config directory.
package pdfconf

import (
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var once sync.Once

// New returns a fresh relaxed-validation configuration.
func New() *model.Configuration {
	once.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
