package worker

import (
	"net"
	"time"

	"mldht/logger"
)

type fakeSender struct {
	sent []sentMsg
	addr net.Addr
}

type sentMsg struct {
	addr *net.UDPAddr
	msg  interface{}
}

func (f *fakeSender) Send(addr *net.UDPAddr, msg interface{}) error {
	f.sent = append(f.sent, sentMsg{addr: addr, msg: msg})
	return nil
}

func (f *fakeSender) LocalAddr() net.Addr {
	if f.addr != nil {
		return f.addr
	}
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 6881}
}

type fakeScheduler struct {
	scheduled []interface{}
}

func (f *fakeScheduler) ScheduleIn(delay time.Duration, token interface{}) {
	f.scheduled = append(f.scheduled, token)
}

func testLogger() logger.DebugLogger { return &logger.NullLogger{} }
