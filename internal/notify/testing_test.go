package notify

import "github.com/itsgxxxxx/AI-Monitor/pkg/logx"

func testLogger() logx.Logger { return logx.Nop() }
