package common

import "fmt"

// PageSize is the size in bytes of every page moved between storage and memory.
const PageSize int = 4096

// PageID uniquely identifies a logical page on persistent storage. Identifiers are handed out monotonically by the
// buffer pool starting at 0 and are never reused within the lifetime of a process.
type PageID int64

// InvalidPageID marks a frame that holds no page.
const InvalidPageID PageID = -1

// IsNil checks if the PageID is valid.
func (p PageID) IsNil() bool {
	return p < 0
}

func (p PageID) String() string {
	if p.IsNil() {
		return "Page(nil)"
	}
	return fmt.Sprintf("Page(%d)", int64(p))
}

// FrameID is the index of a slot in the buffer pool's frame array.
type FrameID int

// InvalidFrameID is returned where no frame applies.
const InvalidFrameID FrameID = -1
