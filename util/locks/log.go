package locks

import (
	"github.com/blockflow/flowd/logger"
	"github.com/blockflow/flowd/util/panics"
)

var log, _ = logger.Get(logger.SubsystemTags.UTIL)
var spawn = panics.GoroutineWrapperFunc(log)
