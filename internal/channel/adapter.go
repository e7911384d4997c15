package channel

import "go.uber.org/zap"

// Adapter translates (recipient, meta) pairs into one outbound transport call
// per recipient and a positional Result slice (C4, §4.4). The four concrete
// implementations each delegate to Send (C3) over a channel-specific sendOne.
type Adapter interface {
	Send(recipients []string, metas []Meta, logger *zap.Logger) []Result
}
