/* Copyright 2024 Bosun Labs
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

import (
	"math/rand"
	"sync"
)

var (
	genmu  sync.Mutex
	symbol = []rune("0123456789abcdef")
)

// Gensym makes a random string of the given length.  Not
// cryptographic; just for ids.
func Gensym(n int) string {
	genmu.Lock()
	acc := make([]rune, n)
	for i := range acc {
		acc[i] = symbol[rand.Intn(len(symbol))]
	}
	genmu.Unlock()
	return string(acc)
}
