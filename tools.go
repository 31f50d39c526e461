//go:build tools

package tools

import (
	_ "github.com/SeaRoll/interfacer/cmd"
)
