package logging

import "time"

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Domain field helpers

func Component(name string) Field {
	return String("component", name)
}

func HostID(id string) Field {
	return String("host_id", id)
}

func ClusterID(id string) Field {
	return String("cluster_id", id)
}

func Mode(mode string) Field {
	return String("mode", mode)
}

func Key(key string) Field {
	return String("key", key)
}

// Attempt is 1-indexed in logs so operators read "attempt 8 of 8"
func Attempt(n, max int) Field {
	return Field{Key: "attempt", Value: map[string]int{"n": n, "max": max}}
}

func Task(name string) Field {
	return String("task", name)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}
