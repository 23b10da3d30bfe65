package sim

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EventType tags the payload carried by an Event record.
type EventType uint8

const (
	EventInvalid EventType = iota
	EventROIStart
	EventROIFinish
	EventThreadStart
	EventThreadFinish
	EventThreadBlocked
	EventThreadUnblocked
	EventMemRead
	EventMemWrite
	EventMemAlloc
	EventMemFree
	EventBasicBlock
	EventHBSource
	EventHBSink
)

func (t EventType) String() string {
	switch t {
	case EventROIStart:
		return "roi_start"
	case EventROIFinish:
		return "roi_finish"
	case EventThreadStart:
		return "thread_start"
	case EventThreadFinish:
		return "thread_finish"
	case EventThreadBlocked:
		return "thread_blocked"
	case EventThreadUnblocked:
		return "thread_unblocked"
	case EventMemRead:
		return "mem_read"
	case EventMemWrite:
		return "mem_write"
	case EventMemAlloc:
		return "mem_alloc"
	case EventMemFree:
		return "mem_free"
	case EventBasicBlock:
		return "basic_block"
	case EventHBSource:
		return "hb_source"
	case EventHBSink:
		return "hb_sink"
	default:
		return "invalid"
	}
}

// InvalidTID is the sentinel "no such thread" value: all-ones in a u16.
const InvalidTID uint16 = 0xFFFF

// wireEvent is the exact fixed-width on-pipe layout. Field order and types
// are load-bearing: the sending and receiving programs must agree on this
// layout byte-for-byte, and binary.Write/Read walk it field by field in
// declaration order.
type wireEvent struct {
	Type           uint8
	_              [1]byte // pad to 2-byte alignment for TID
	TID            uint16
	Addr           uint64
	MemOpSize      uint32
	StackRef       uint8
	_              [3]byte
	SyncObject     uint64
	IsLifeLock     uint8
	_              [7]byte
	HBSourceThread uint16
	_              [6]byte
	LogicalTime    uint64
	InsnCount      uint32
	_              [4]byte
}

// EventSize is the exact byte width of one Event record on the wire: the
// sum of wireEvent's fields and explicit padding, in declaration order.
const EventSize = 60

// Event is a fixed-width tagged record carrying a thread id, a type, and
// type-specific payload. It is the unit of read/write on the event pipe.
type Event struct {
	Type EventType
	TID  uint16

	// mem ops: byte address; alloc/free: base address
	Addr uint64
	// mem ops: size in bytes; alloc: extent; 0 on free
	MemOpSize uint32
	// mem ops: true if access targets the thread stack
	StackRef bool

	// hb events: identifier of the synchronized object
	SyncObject uint64
	// hb events: true for the synthetic create/join ordering
	IsLifeLock bool
	// hb-sink: tid of the last thread to source this sync-object
	HBSourceThread uint16
	// hb events on life-locks: 1-indexed per-object sequence, assigned by
	// the dispatcher on arrival from the pipe
	LogicalTime uint64

	// basic-block events: instructions in the block
	InsnCount uint32
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// WriteTo serializes e to w in the fixed wire layout.
func (e Event) WriteTo(w io.Writer) (int64, error) {
	we := wireEvent{
		Type:           uint8(e.Type),
		TID:            e.TID,
		Addr:           e.Addr,
		MemOpSize:      e.MemOpSize,
		StackRef:       boolToU8(e.StackRef),
		SyncObject:     e.SyncObject,
		IsLifeLock:     boolToU8(e.IsLifeLock),
		HBSourceThread: e.HBSourceThread,
		LogicalTime:    e.LogicalTime,
		InsnCount:      e.InsnCount,
	}
	if err := binary.Write(w, binary.NativeEndian, &we); err != nil {
		return 0, err
	}
	return EventSize, nil
}

// ReadEvent reads exactly one fixed-width Event record from r. Partial
// reads are retried internally (io.ReadFull) until a full record is
// gathered or the stream is exhausted; io.EOF is returned only when zero
// bytes could be read at the start of a record, matching the pipe
// multiplexer's "clean EOF between records" contract.
func ReadEvent(r io.Reader) (Event, error) {
	var we wireEvent
	if err := binary.Read(r, binary.NativeEndian, &we); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Event{}, fmt.Errorf("rcdcsim: short read mid-record: %w", err)
		}
		return Event{}, err
	}
	return Event{
		Type:           EventType(we.Type),
		TID:            we.TID,
		Addr:           we.Addr,
		MemOpSize:      we.MemOpSize,
		StackRef:       we.StackRef != 0,
		SyncObject:     we.SyncObject,
		IsLifeLock:     we.IsLifeLock != 0,
		HBSourceThread: we.HBSourceThread,
		LogicalTime:    we.LogicalTime,
		InsnCount:      we.InsnCount,
	}, nil
}

// IsSync reports whether e is a happens-before source or sink, life-lock or
// not.
func (e Event) IsSync() bool {
	return e.Type == EventHBSource || e.Type == EventHBSink
}

func (e Event) String() string {
	switch e.Type {
	case EventMemRead, EventMemWrite:
		return fmt.Sprintf("%s tid=%d addr=0x%x size=%d stack=%v", e.Type, e.TID, e.Addr, e.MemOpSize, e.StackRef)
	case EventHBSource, EventHBSink:
		return fmt.Sprintf("%s tid=%d syncObj=0x%x logicalTime=%d", e.Type, e.TID, e.SyncObject, e.LogicalTime)
	case EventBasicBlock:
		return fmt.Sprintf("%s tid=%d insnCount=%d", e.Type, e.TID, e.InsnCount)
	default:
		return fmt.Sprintf("%s tid=%d", e.Type, e.TID)
	}
}
