package di

import "go.uber.org/dig"

// BuildContainer 构建依赖注入容器
func BuildContainer() (*dig.Container, error) {
	container := dig.New()
	if err := RegisterProviders(container); err != nil {
		return nil, err
	}
	return container, nil
}
