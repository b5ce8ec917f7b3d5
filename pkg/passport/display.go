package passport

import (
	"fmt"
	"strings"

	"github.com/corverto/emrtd/pkg/lds"
)

// DisplayKind identifies which DisplayMessage variant is being reported.
type DisplayKind int

const (
	DisplayRequestPresent DisplayKind = iota
	DisplayAuthenticating
	DisplayReadingDataGroup
	DisplayError
	DisplaySuccessfulRead
)

// DisplayMessage is pushed to OnDisplayMessage at each user-visible step
// of the read. Percent is meaningful only for Authenticating and
// ReadingDataGroup, reset to 0 at the start of each file/step.
type DisplayMessage struct {
	Kind      DisplayKind
	Percent   int
	DataGroup lds.DataGroupId
	Err       *DocumentError
}

// DefaultText renders the exact default English text for a message,
// used when OnDisplayMessage returns nil.
func (m DisplayMessage) DefaultText() string {
	switch m.Kind {
	case DisplayRequestPresent:
		return "Please hold the document to the top of the phone."
	case DisplayAuthenticating:
		return "Authenticating" + progressBlock(m.Percent)
	case DisplayReadingDataGroup:
		return fmt.Sprintf("Reading %s", dataGroupLabel(m.DataGroup)) + progressBlock(m.Percent)
	case DisplayError:
		if m.Err != nil {
			return m.Err.UserMessage()
		}
		return "Sorry, there was a problem reading the Document. Please try again"
	case DisplaySuccessfulRead:
		return "NFC read successfully"
	default:
		return ""
	}
}

// resolveText returns override's text if override is non-nil, else the
// message's built-in default.
func (m DisplayMessage) resolveText(override *string) string {
	if override != nil {
		return *override
	}
	return m.DefaultText()
}

// progressBlock renders "<label>.....\n\n" followed by a 5-cell bar where
// each cell represents 20% progress.
func progressBlock(pct int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct / 20
	var b strings.Builder
	b.WriteString(".....\n\n")
	for i := 0; i < 5; i++ {
		if i < filled {
			b.WriteString("\U0001F535 ") // 🔵
		} else {
			b.WriteString("⚪️ ") // ⚪️
		}
	}
	return b.String()
}

func dataGroupLabel(id lds.DataGroupId) string {
	return fmt.Sprintf("DG%d", id)
}
