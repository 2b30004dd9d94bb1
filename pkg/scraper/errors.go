package scraper

import "errors"

// ErrSessionAcquisitionFailed is returned when the headless browser
// completed but no authorization header was ever captured.
var ErrSessionAcquisitionFailed = errors.New("scraper: session acquisition failed")
