package tree

import (
	"fmt"

	"github.com/golang/glog"
)

// Warner receives soft failures: dropped tokens and unparsable payloads.
type Warner interface {
	Warningf(format string, args ...any)
}

type glogWarner struct{}

func (glogWarner) Warningf(format string, args ...any) {
	glog.WarningDepth(1, fmt.Sprintf(format, args...))
}
