// Copyright (C) 2026 Verdant Health (engineering@verdanthealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aiops

import "errors"

// Sentinel errors for the aiops service. The component packages carry
// their own sentinels (tracing.ErrUnknownFormat, synthetic.
// ErrUnknownTestType, resilience.ErrCircuitOpen); these cover the
// facade itself.
var (
	// ErrServiceClosed indicates an operation on a stopped service.
	ErrServiceClosed = errors.New("service closed")
)
