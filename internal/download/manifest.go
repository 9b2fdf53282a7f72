package download

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kestrad/modelgrab/internal/utils"
)

// ReadImageList loads a YAML manifest of image tasks:
//
//	- link: https://example.com/image.png
//	  op: images/image.png
func ReadImageList(filePath string) ([]ImageTask, error) {
	log := utils.GetLogger("manifest")
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %v", err)
	}
	var tasks []ImageTask
	if err := yaml.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %v", err)
	}
	for i, task := range tasks {
		if task.URL == "" {
			return nil, fmt.Errorf("missing URL for entry %d", i+1)
		}
		if task.Path == "" {
			return nil, fmt.Errorf("missing output path for entry %d", i+1)
		}
	}
	log.Debug().Int("count", len(tasks)).Msg("Tasks loaded from YAML")
	return tasks, nil
}
