package plugin

import (
	"fmt"
	"sync"
)

// SensorFactory constructs a sensor instance from its manifest.
type SensorFactory func(m *Manifest) (Sensor, error)

// RendererFactory constructs a renderer instance from its manifest.
type RendererFactory func(m *Manifest) (Renderer, error)

var (
	factoryMu         sync.RWMutex
	sensorFactories   = make(map[string]SensorFactory)
	rendererFactories = make(map[string]RendererFactory)
)

// RegisterSensor registers a sensor factory under the class name manifests
// refer to. Called from plugin package init functions.
func RegisterSensor(class string, f SensorFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, dup := sensorFactories[class]; dup {
		panic(fmt.Sprintf("plugin: duplicate sensor factory %q", class))
	}
	sensorFactories[class] = f
}

// RegisterRenderer registers a renderer factory under the class name
// manifests refer to. Called from plugin package init functions.
func RegisterRenderer(class string, f RendererFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, dup := rendererFactories[class]; dup {
		panic(fmt.Sprintf("plugin: duplicate renderer factory %q", class))
	}
	rendererFactories[class] = f
}

func newSensor(class string, m *Manifest) (Sensor, error) {
	factoryMu.RLock()
	f, ok := sensorFactories[class]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no sensor registered for class %q", class)
	}
	return f(m)
}

func newRenderer(class string, m *Manifest) (Renderer, error) {
	factoryMu.RLock()
	f, ok := rendererFactories[class]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no renderer registered for class %q", class)
	}
	return f(m)
}
