package main

// General API documentation for swaggo. Run `swag init` to generate docs.
//
// @title           vllmd API
// @version         1.0
// @description     HTTP API for managing vLLM inference server processes.
//
// @contact.name   vllmd maintainers
// @contact.url    https://github.com/your-org/vllmd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
