package signal

import (
	"github.com/dkeye/Stream/internal/app/orch"
	"github.com/dkeye/Stream/internal/core"
)

func (ctl *SignalWSController) handlePing(s *orch.Session, conn core.SignalConnection) {
	ctl.sendJSON(s, conn, ack{Action: actionPong})
}
