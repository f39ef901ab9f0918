package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

func TestCollector_Counts(t *testing.T) {
	c := NewCollector()
	c.TrackMessageLogged(types.SeverityInfo)
	c.TrackMessageLogged(types.SeverityInfo)
	c.TrackMessageLogged(types.SeverityError)
	c.TrackMessageFiltered()
	c.TrackMessageDropped()
	c.TrackError("print")
	c.TrackError("print")
	c.TrackError("rotate")
	c.TrackWrite(10, 2*time.Millisecond)
	c.TrackWrite(30, 4*time.Millisecond)
	c.TrackRotation()

	m := c.GetMetrics(3, 12, []SinkMetrics{{Name: "a", Rotations: 2}})

	if m.MessagesLogged["INFO"] != 2 || m.MessagesLogged["ERROR"] != 1 {
		t.Errorf("messages = %v", m.MessagesLogged)
	}
	if m.MessagesFiltered != 1 || m.MessagesDropped != 1 {
		t.Errorf("filtered/dropped = %d/%d", m.MessagesFiltered, m.MessagesDropped)
	}
	if m.ErrorCount != 3 || m.ErrorsBySource["print"] != 2 || m.ErrorsBySource["rotate"] != 1 {
		t.Errorf("errors = %d %v", m.ErrorCount, m.ErrorsBySource)
	}
	if m.BytesWritten != 40 || m.WriteCount != 2 {
		t.Errorf("bytes/writes = %d/%d", m.BytesWritten, m.WriteCount)
	}
	if m.AverageWriteTime != 3*time.Millisecond || m.MaxWriteTime != 4*time.Millisecond {
		t.Errorf("timing = %v/%v", m.AverageWriteTime, m.MaxWriteTime)
	}
	if m.QueueUtilization != 0.25 {
		t.Errorf("utilization = %v", m.QueueUtilization)
	}
	if m.RotationCount != 1 || m.SinkCount != 1 {
		t.Errorf("rotations/sinks = %d/%d", m.RotationCount, m.SinkCount)
	}
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()
	c.TrackMessageLogged(types.SeverityWarning)
	c.TrackError("flush")
	c.TrackMessageDropped()
	c.ResetMetrics()

	if c.GetMessageCount(types.SeverityWarning) != 0 || c.GetErrorCount() != 0 || c.GetDroppedCount() != 0 {
		t.Error("counters not reset")
	}
	if len(c.GetMetrics(0, 0, nil).ErrorsBySource) != 0 {
		t.Error("zero counts should be omitted")
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.TrackMessageLogged(types.SeverityVerbose)
				c.TrackWrite(1, time.Duration(i))
			}
		}()
	}
	wg.Wait()

	if got := c.GetMessageCount(types.SeverityVerbose); got != 10000 {
		t.Errorf("count = %d, want 10000", got)
	}
	if got := c.GetMetrics(0, 0, nil).MaxWriteTime; got != 999 {
		t.Errorf("max = %v, want 999ns", got)
	}
}
