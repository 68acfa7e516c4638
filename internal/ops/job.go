// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Reads a job, i.e. a JSON or YAML description of an operator, from file.
// YAML is recognized by the .yaml or .yml suffix
func LoadJobFile(fileName string) (Operator, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	return ParseJob(data, ext == ".yaml" || ext == ".yml")
}

// Parses a job description. YAML input is converted to the equivalent JSON first,
// so both formats share the operators' JSON decoding and default filling
func ParseJob(data []byte, isYAML bool) (Operator, error) {
	if isYAML {
		var tree interface{}
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parsing YAML job: %w", err)
		}
		var err error
		if data, err = json.Marshal(tree); err != nil {
			return nil, fmt.Errorf("converting YAML job: %w", err)
		}
	}
	op, err := UnmarshalOperator(data)
	if err != nil {
		return nil, fmt.Errorf("parsing job: %w", err)
	}
	return op, nil
}

// Runs a job: builds the promises of the operator and materializes them
func RunJob(op Operator, c *Context) error {
	promises, err := op.MakePromises(nil, c)
	if err != nil {
		return err
	}
	_, err = MaterializeAll(promises, c.MaxThreads, true)
	return err
}
