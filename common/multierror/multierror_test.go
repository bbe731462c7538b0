//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package multierror

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendNil(t *testing.T) {
	assert.Nil(t, Append(nil))
	assert.Nil(t, Append(nil, nil, nil))
}

func TestAppendSingle(t *testing.T) {
	e := errors.New("boom")
	err := Append(nil, e)
	require.NotNil(t, err)
	assert.Equal(t, "boom", err.Error())
	require.IsType(t, &Error{}, err)
	assert.Equal(t, []error{e}, err.(*Error).Errors())
}

func TestAppendAccumulates(t *testing.T) {
	err := Append(nil, errors.New("first"))
	err = Append(err, nil)
	err = Append(err, errors.New("second"))
	require.IsType(t, &Error{}, err)
	assert.Len(t, err.(*Error).Errors(), 2)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
}

func TestAppendToPlainError(t *testing.T) {
	err := Append(errors.New("head"), errors.New("tail"))
	require.IsType(t, &Error{}, err)
	assert.Len(t, err.(*Error).Errors(), 2)
}

func TestAppendFlattens(t *testing.T) {
	inner := Append(nil, errors.New("a"), errors.New("b"))
	err := Append(errors.New("c"), inner)
	require.IsType(t, &Error{}, err)
	assert.Len(t, err.(*Error).Errors(), 3)
}
