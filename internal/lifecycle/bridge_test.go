package lifecycle

import (
	"testing"
	"time"
)

func TestEmittedSignalsArriveInOrder(t *testing.T) {
	b := NewHostBridge(time.Hour)
	defer b.Close()

	b.EmitHidden("CIS-ITSM")
	b.EmitUnload("CIS-ITSM")

	first := <-b.Triggers()
	if first.Kind != TriggerHidden || first.ExamCode != "CIS-ITSM" {
		t.Errorf("first trigger = %+v, want hidden", first)
	}
	second := <-b.Triggers()
	if second.Kind != TriggerUnload {
		t.Errorf("second trigger = %+v, want unload", second)
	}
}

func TestTickerProducesTicks(t *testing.T) {
	b := NewHostBridge(5 * time.Millisecond)
	defer b.Close()

	b.ResumeTicks()

	select {
	case trig := <-b.Triggers():
		if trig.Kind != TriggerTick {
			t.Errorf("trigger kind = %v, want tick", trig.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick within 1s")
	}
}

func TestPauseStopsTicks(t *testing.T) {
	b := NewHostBridge(5 * time.Millisecond)
	defer b.Close()

	b.ResumeTicks()
	<-b.Triggers()
	b.PauseTicks()

	// Let any in-flight send land, then drain.
	time.Sleep(20 * time.Millisecond)
	for {
		select {
		case <-b.Triggers():
			continue
		default:
		}
		break
	}

	select {
	case trig := <-b.Triggers():
		t.Errorf("trigger %+v after pause", trig)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResumeIsIdempotent(t *testing.T) {
	b := NewHostBridge(time.Hour)
	defer b.Close()

	b.ResumeTicks()
	b.ResumeTicks()
	b.PauseTicks()
	b.PauseTicks()
}
