package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           Qwen Image Edit API
// @version         1.0.0
// @description     Prompt-driven image editing served from a DFloat11-compressed Qwen-Image-Edit pipeline.
//
// @contact.name   qwenedit maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
