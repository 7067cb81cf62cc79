package utils

// Map applies a function to every element of a slice, producing a new slice
func Map[T any, U any](input []T, mapFunction func(T) U) []U {
	output := make([]U, len(input))

	for i := range input {
		output[i] = mapFunction(input[i])
	}

	return output
}

// Keys returns a slice with all the keys of a map
func Keys[Key comparable, Value any](input map[Key]Value) []Key {
	keys := make([]Key, 0, len(input))

	for key := range input {
		keys = append(keys, key)
	}

	return keys
}

// InvertedMap converts a Key -> Value map into a Value -> Key map
func InvertedMap[Key comparable, Value comparable](input map[Key]Value) map[Value]Key {
	output := make(map[Value]Key, len(input))

	for key, value := range input {
		output[value] = key
	}

	return output
}
