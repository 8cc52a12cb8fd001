package chat

// ScrollAnchor preserves the reader's visual position across a LoadOlder
// prepend. The view captures the content height before the prepend and,
// after the new page has rendered, offsets its scroll position by the height
// delta so the previously-visible message stays in view.
//
//	anchor := chat.CaptureScroll(view.ContentHeight())
//	thread.LoadOlder(ctx)
//	// ...after render...
//	view.ScrollBy(anchor.Offset(view.ContentHeight()))
type ScrollAnchor struct {
	heightBefore float64
}

// CaptureScroll records the content height before the prepend.
func CaptureScroll(contentHeight float64) ScrollAnchor {
	return ScrollAnchor{heightBefore: contentHeight}
}

// Offset returns the scroll delta to apply after the prepend has rendered.
func (a ScrollAnchor) Offset(contentHeightAfter float64) float64 {
	return contentHeightAfter - a.heightBefore
}
