package cmd

import "errors"

var errNothingToUpdate = errors.New("nothing to update")
