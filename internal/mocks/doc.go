// Package mocks provides shared test doubles for the capability interfaces.
//
// Each mock has a function field per method; a nil field falls back to a
// benign default so tests only configure the behavior they assert on.
//
//	ai := &mocks.MockAI{
//	    GenerateMessageFn: func(ctx context.Context, p domain.VendorProfile) (string, error) {
//	        return "", capability.ErrContentBlocked
//	    },
//	}
package mocks
