package guide

import "errors"

// ErrInvalidBase is returned by RevcompString when its input contains a
// character outside A/C/G/T. Unlike Encode (which returns ErrorWord, so a
// bad index record doesn't abort a whole build), RevcompString reports the
// invalid character as an error.
var ErrInvalidBase = errors.New("guide: sequence contains a character outside A/C/G/T")
