package message

import (
	"fmt"
	"math"
)

// Coerce converts an external value into a message. Conversion is
// attempted in the following order and the first match wins:
//
//	Message, *Message
//	Trigger
//	float64, float32
//	signed and unsigned integers
//	bool
//	string
//
// Any other value results in ErrType.
func Coerce(v interface{}) (Message, error) {
	switch t := v.(type) {
	case Message:
		return t, nil
	case *Message:
		if t != nil {
			return *t, nil
		}
	case Trigger, *Trigger:
		return NewBang(), nil
	case float64:
		return NewFloat(t), nil
	case float32:
		return NewFloat(float64(t)), nil
	case int:
		return NewInt(int64(t)), nil
	case int8:
		return NewInt(int64(t)), nil
	case int16:
		return NewInt(int64(t)), nil
	case int32:
		return NewInt(int64(t)), nil
	case int64:
		return NewInt(t), nil
	case uint:
		return coerceUnsigned(uint64(t))
	case uint8:
		return NewInt(int64(t)), nil
	case uint16:
		return NewInt(int64(t)), nil
	case uint32:
		return NewInt(int64(t)), nil
	case uint64:
		return coerceUnsigned(t)
	case bool:
		return NewBool(t), nil
	case string:
		return NewString(t), nil
	}
	return Message{}, fmt.Errorf("%w: %T, must be Bang, float, int, bool or string", ErrType, v)
}

func coerceUnsigned(u uint64) (Message, error) {
	if u > math.MaxInt64 {
		return Message{}, fmt.Errorf("%w: %d overflows int64", ErrType, u)
	}
	return NewInt(int64(u)), nil
}

// Render converts message into an external value. Bang is rendered as
// Trigger{}. None can't be rendered and results in ErrType.
//
// Numbers are rendered in their widest form: Float as float64 and Int as
// int64. Render(Coerce(v)) returns v unchanged only for float64, int64,
// bool, string and Trigger; other numeric types, e.g. int, float32 or
// uint8, come back widened.
func Render(m Message) (interface{}, error) {
	switch m.kind {
	case Bang:
		return Trigger{}, nil
	case Float:
		return m.num, nil
	case Int:
		return m.i, nil
	case Bool:
		return m.i != 0, nil
	case String:
		return m.s, nil
	}
	return nil, fmt.Errorf("%w: %v can't be rendered", ErrType, m.kind)
}

// MustCoerce is like Coerce but panics if the value can't be converted.
// It simplifies declaration of message literals.
func MustCoerce(v interface{}) Message {
	m, err := Coerce(v)
	if err != nil {
		panic(err)
	}
	return m
}
