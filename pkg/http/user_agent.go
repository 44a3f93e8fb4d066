package http

import (
	"fmt"

	"github.com/slipway-ci/slipway/pkg/global"
)

func UserAgent() string {
	return fmt.Sprintf("Slipway/%s", global.Version)
}
