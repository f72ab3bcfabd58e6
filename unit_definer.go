// unit_definer.go: Turning bundle entries into loaded types
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnitDefiner defines a type from the bytes of one bundle entry. owner is
// the loader the new type is attributed to. Any error is reported to callers
// as MalformedUnit.
type UnitDefiner interface {
	Define(ctx context.Context, unit ModuleUnit, owner Loader) (*LoadedType, error)
}

// UnitFormat pairs an entry file suffix with the definer for that format.
type UnitFormat struct {
	Suffix  string
	Definer UnitDefiner
}

// DescriptorSuffix is the file suffix of YAML unit descriptors.
const DescriptorSuffix = ".unit.yaml"

// UnitDescriptor is the YAML document stored in a descriptor unit.
//
// Example:
//
//	type: org.pentaho.hadoop.shim.HadoopConfiguration
//	constructors: [by-name, by-name-and-id]
//	metadata:
//	  vendor: cdh
type UnitDescriptor struct {
	Type         string            `yaml:"type"`
	Constructors []string          `yaml:"constructors,omitempty"`
	Metadata     map[string]string `yaml:"metadata,omitempty"`
}

// DescriptorDefiner defines types from YAML descriptors whose constructors
// are looked up in a ConstructorTable.
type DescriptorDefiner struct {
	table *ConstructorTable
}

// NewDescriptorDefiner creates a definer backed by table.
func NewDescriptorDefiner(table *ConstructorTable) *DescriptorDefiner {
	if table == nil {
		table = NewConstructorTable()
	}
	return &DescriptorDefiner{table: table}
}

// Define implements UnitDefiner.
func (d *DescriptorDefiner) Define(ctx context.Context, unit ModuleUnit, owner Loader) (*LoadedType, error) {
	var desc UnitDescriptor
	dec := yaml.NewDecoder(bytes.NewReader(unit.Bytes))
	dec.KnownFields(true)
	if err := dec.Decode(&desc); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	desc.Type = strings.TrimSpace(desc.Type)
	if desc.Type == "" {
		return nil, fmt.Errorf("descriptor declares no type")
	}
	if desc.Type != unit.Name {
		return nil, fmt.Errorf("descriptor declares %s, expected %s", desc.Type, unit.Name)
	}

	ctors, err := d.table.Select(desc.Type, desc.Constructors)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string, len(desc.Metadata)+2)
	for k, v := range desc.Metadata {
		meta[k] = v
	}
	meta["format"] = "descriptor"
	meta["locator"] = unit.Locator

	origin := unit.Origin
	return NewLoadedType(owner, TypeSpec{
		Name:         unit.Name,
		Module:       &origin,
		Constructors: ctors,
		Metadata:     meta,
	}), nil
}
