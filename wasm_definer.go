// wasm_definer.go: WebAssembly module units
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"
)

// WasmSuffix is the file suffix of WebAssembly units.
const WasmSuffix = ".wasm"

// WasmDefiner defines types from WebAssembly binaries. The binary is
// compiled (validated) with wazero and kept as the type payload; the
// constructor variants come from a ConstructorTable, like descriptor units.
type WasmDefiner struct {
	runtime wazero.Runtime
	table   *ConstructorTable
}

// NewWasmDefiner creates a definer compiling with runtime. The caller owns
// runtime and closes it when the bridge is discarded.
func NewWasmDefiner(runtime wazero.Runtime, table *ConstructorTable) *WasmDefiner {
	if table == nil {
		table = NewConstructorTable()
	}
	return &WasmDefiner{runtime: runtime, table: table}
}

// Define implements UnitDefiner.
func (w *WasmDefiner) Define(ctx context.Context, unit ModuleUnit, owner Loader) (*LoadedType, error) {
	if w.runtime == nil {
		return nil, fmt.Errorf("no wasm runtime configured")
	}
	compiled, err := w.runtime.CompileModule(ctx, unit.Bytes)
	if err != nil {
		return nil, fmt.Errorf("compile wasm module: %w", err)
	}

	exports := make([]string, 0, len(compiled.ExportedFunctions()))
	for name := range compiled.ExportedFunctions() {
		exports = append(exports, name)
	}
	sort.Strings(exports)

	origin := unit.Origin
	return NewLoadedType(owner, TypeSpec{
		Name:         unit.Name,
		Module:       &origin,
		Constructors: w.table.Variants(unit.Name),
		Payload:      compiled,
		Metadata: map[string]string{
			"format":  "wasm",
			"locator": unit.Locator,
			"exports": strings.Join(exports, ","),
		},
	}), nil
}
