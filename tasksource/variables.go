// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package tasksource

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

const (
	TypeInteger = "Integer"
	TypeLong    = "Long"
	TypeShort   = "Short"
	TypeString  = "String"
	TypeObject  = "Object"
	TypeNull    = "Null"
)

var (
	ErrVariableMissing = errors.New("variable is missing")
	ErrVariableType    = errors.New("variable has an unexpected type")
)

// Variable is a typed process variable as the engine REST API carries it
type Variable struct {
	Value     any            `json:"value"`
	Type      string         `json:"type,omitempty"`
	ValueInfo map[string]any `json:"valueInfo,omitempty"`
}

type Variables map[string]Variable

func IntegerVariable(v int) Variable {
	return Variable{Value: v, Type: TypeInteger}
}

// JsonObjectVariable serializes obj into a JSON string carried as an Object variable
func JsonObjectVariable(obj any, objectTypeName string) (Variable, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return Variable{}, err
	}
	return Variable{
		Value: string(data),
		Type:  TypeObject,
		ValueInfo: map[string]any{
			"objectTypeName":          objectTypeName,
			"serializationDataFormat": "application/json",
		},
	}, nil
}

// UntypedVariables wraps raw values, leaving the type for the engine to infer
func UntypedVariables(raw map[string]any) Variables {
	vars := Variables{}
	for name, v := range raw {
		vars[name] = Variable{Value: v}
	}
	return vars
}

// GetInt reads an integral variable. A value that is absent or null is ErrVariableMissing,
// anything that isn't an integer is ErrVariableType.
func (v Variables) GetInt(name string) (int, error) {
	variable, ok := v[name]
	if !ok || variable.Value == nil || variable.Type == TypeNull {
		return 0, fmt.Errorf("%w: %v", ErrVariableMissing, name)
	}
	switch variable.Type {
	case "", TypeInteger, TypeLong, TypeShort:
	default:
		return 0, fmt.Errorf("%w: %v is %v", ErrVariableType, name, variable.Type)
	}

	switch value := variable.Value.(type) {
	case int:
		return value, nil
	case int32:
		return int(value), nil
	case int64:
		return int(value), nil
	case float64:
		if value != math.Trunc(value) || math.IsInf(value, 0) {
			return 0, fmt.Errorf("%w: %v is not integral", ErrVariableType, name)
		}
		// -math.MinInt is MaxInt+1, exact as a float64 unlike MaxInt
		if value < math.MinInt || value >= -math.MinInt {
			return 0, fmt.Errorf("%w: %v is out of the int range", ErrVariableType, name)
		}
		return int(value), nil
	case json.Number:
		i, err := value.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v is not integral", ErrVariableType, name)
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("%w: %v holds %T", ErrVariableType, name, variable.Value)
	}
}
